package observability

import (
	"net/http"

	"github.com/rollbar/rollbar-go"
	"github.com/sirupsen/logrus"
)

type ReporterConfig struct {
	Token       string
	Environment string
	Version     string
}

// Reporter forwards unclassified request errors to Rollbar when a token is
// configured and always logs them.
type Reporter struct {
	client *rollbar.Client
	log    logrus.FieldLogger
}

func NewReporter(cfg ReporterConfig, log logrus.FieldLogger) *Reporter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Reporter{log: log.WithField("component", "errors")}
	if cfg.Token != "" {
		r.client = rollbar.NewAsync(cfg.Token, cfg.Environment, cfg.Version, "", "")
	}
	return r
}

func (r *Reporter) Enabled() bool { return r.client != nil }

// ReportRequest matches apiresp.InternalReporter.
func (r *Reporter) ReportRequest(req *http.Request, err error) {
	r.log.WithError(err).WithFields(logrus.Fields{
		"method": req.Method,
		"path":   req.URL.Path,
	}).Error("internal error")
	if r.client != nil {
		r.client.RequestError(rollbar.ERR, req, err)
	}
}

// Close flushes queued reports.
func (r *Reporter) Close() {
	if r.client != nil {
		r.client.Close()
	}
}
