package feature

import (
	"time"

	"netsentry/internal/model"
	"netsentry/internal/track"
)

// Extractor turns packets into fixed-order feature vectors using the
// connection tracker plus the three auxiliary trackers.
//
// Extract also records the access and flow-rate events for the packet. The
// mutation-on-read is deliberate: every extracted packet is an observation
// the rolling windows must see, and a separate recording pass would double
// the locking for no benefit.
type Extractor struct {
	conns  *track.ConnTracker
	logins *track.LoginTracker
	rates  *track.FlowRateCalc
	access *track.AccessTracker
}

// New wires an extractor to its trackers.
func New(conns *track.ConnTracker, logins *track.LoginTracker, rates *track.FlowRateCalc, access *track.AccessTracker) *Extractor {
	return &Extractor{conns: conns, logins: logins, rates: rates, access: access}
}

// NewWithDefaults builds an extractor with freshly created trackers using
// the documented default windows.
func NewWithDefaults() *Extractor {
	return New(
		track.NewConnTracker(),
		track.NewLoginTracker(time.Hour),
		track.NewFlowRateCalc(60*time.Second),
		track.NewAccessTracker(5*time.Minute),
	)
}

// Conns exposes the connection tracker for the eviction sweep.
func (e *Extractor) Conns() *track.ConnTracker { return e.conns }

// Logins exposes the login tracker for brute-force signals.
func (e *Extractor) Logins() *track.LoginTracker { return e.logins }

// Extract computes the 6-scalar feature vector for the packet. It never
// fails: a packet the trackers cannot place yields the all-zero vector.
func (e *Extractor) Extract(rec *model.PacketRecord) model.FeatureVector {
	var v model.FeatureVector
	if rec == nil || rec.SrcIP == nil {
		return v
	}

	key := rec.Flow()
	src := rec.SrcIP.String()

	e.conns.StartOrTouch(key, rec.Timestamp, rec.Length)
	e.rates.Record(key, rec.Length)
	e.access.Record(src)

	v[model.FeatPacketSize] = float64(rec.Length)
	v[model.FeatProtocolType] = float64(rec.Protocol.Number)
	v[model.FeatConnectionDuration] = e.conns.Duration(key)
	v[model.FeatFailedLogins] = float64(e.logins.Count(src))
	v[model.FeatTransferRate] = e.rates.Rate(key)
	v[model.FeatAccessFrequency] = e.access.Rate(src)
	return v
}
