package model

// FeatureCount is the fixed length of every feature vector.
const FeatureCount = 6

// FeatureVector is the fixed-order numeric summary of one packet plus its
// connection state. The order is part of the model contract and must match
// FeatureNames.
type FeatureVector [FeatureCount]float64

// Feature indices into a FeatureVector.
const (
	FeatPacketSize = iota
	FeatProtocolType
	FeatConnectionDuration
	FeatFailedLogins
	FeatTransferRate
	FeatAccessFrequency
)

// FeatureNames is the canonical schema order used for model reconciliation.
var FeatureNames = []string{
	"packet_size",
	"protocol_type",
	"connection_duration",
	"failed_login_attempts",
	"data_transfer_rate",
	"access_frequency",
}

// Slice returns the vector as a []float64 for model libraries.
func (v FeatureVector) Slice() []float64 {
	out := make([]float64, FeatureCount)
	copy(out, v[:])
	return out
}

// Named returns the vector as a name->value map.
func (v FeatureVector) Named() map[string]float64 {
	m := make(map[string]float64, FeatureCount)
	for i, name := range FeatureNames {
		m[name] = v[i]
	}
	return m
}
