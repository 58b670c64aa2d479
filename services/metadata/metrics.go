package metadata

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"hatchd/services/metadata/preseed"
)

var compositionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "preseed_compositions_total",
	Help: "Preseed documents composed, labelled by request kind and outcome.",
}, []string{"kind", "outcome"})

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, preseed.ErrNoDefaultArchive):
		return "no_default_archive"
	case errors.Is(err, preseed.ErrUnknownOS):
		return "unknown_os"
	case errors.Is(err, preseed.ErrRackUnreachable):
		return "rack_unreachable"
	default:
		return "error"
	}
}
