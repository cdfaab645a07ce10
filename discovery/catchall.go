// discovery/catchall.go
package discovery

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CatchAllDetector probes a domain with an address that cannot exist.
type CatchAllDetector struct {
	probe  Probe
	states *StateCache
	log    *logrus.Entry
	now    func() time.Time
}

func NewCatchAllDetector(probe Probe, states *StateCache, log *logrus.Entry) *CatchAllDetector {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &CatchAllDetector{probe: probe, states: states, log: log, now: time.Now}
}

// IsCatchAll returns the cached status, probing at most once per domain per run.
func (d *CatchAllDetector) IsCatchAll(ctx context.Context, domain, mxHost string) CatchAllStatus {
	status, _ := d.Check(ctx, domain, mxHost)
	return status
}

// Check is IsCatchAll that also reports whether the exchanger was contacted.
func (d *CatchAllDetector) Check(ctx context.Context, domain, mxHost string) (CatchAllStatus, bool) {
	if s, ok := d.states.Get(domain); ok && s.CatchAll != CatchAllUnchecked {
		return s.CatchAll, false
	}

	address := d.nonexistentLocalPart() + "@" + domain
	res := d.probe.Verify(ctx, mxHost, address)
	if ctx.Err() != nil {
		return CatchAllUnchecked, true
	}

	status := CatchAllUnknown
	switch res.Outcome {
	case Accepted:
		status = CatchAllYes
	case Rejected:
		status = CatchAllNo
	}

	d.log.WithFields(logrus.Fields{
		"domain": domain,
		"mx":     mxHost,
		"code":   res.ResponseCode,
		"status": status.String(),
	}).Info("catch-all check")

	d.states.Update(domain, func(s *DomainState) { s.CatchAll = status })
	return status, true
}

func (d *CatchAllDetector) nonexistentLocalPart() string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "zz" + token[:16] + strconv.FormatInt(d.now().Unix(), 10)
}
