package application

import (
	"time"

	"github.com/ericfisherdev/roomvault/internal/domain/model"
	"github.com/ericfisherdev/roomvault/internal/roomcrypto"
	"github.com/ericfisherdev/roomvault/internal/telemetry"
)

type timedDeriver struct {
	inner   roomcrypto.Deriver
	metrics *telemetry.Metrics
}

// InstrumentDeriver records the duration of every derivation made by d.
func InstrumentDeriver(d roomcrypto.Deriver, metrics *telemetry.Metrics) roomcrypto.Deriver {
	if metrics == nil {
		return d
	}
	return timedDeriver{inner: d, metrics: metrics}
}

func (t timedDeriver) DeriveKey(secret model.RoomSecret) ([]byte, error) {
	start := time.Now()
	key, err := t.inner.DeriveKey(secret)
	t.metrics.ObserveKeyDerivation(time.Since(start).Seconds())
	return key, err
}
