// Package decode turns raw coded products into structured records.
//
// Each product family has its own fixed token grammar. Decoding is group by
// group: a token that fits no expected group is kept as an issue on the record
// and decoding carries on, so a single bad group never discards the rest of a
// report. Decoders are pure functions of their input.
package decode

import (
	"fmt"
	"strings"

	"github.com/skybrief/skybrief/internal/notam"
	"github.com/skybrief/skybrief/internal/wx"
)

// Decode decodes raw text of the given product kind. The returned record may
// carry group issues; use wx.AsPartial to surface them as an error.
func Decode(kind wx.ProductKind, raw string) (wx.Record, error) {
	return DecodeReport(wx.RawReport{Kind: kind, RawText: raw})
}

// DecodeReport decodes a raw report and, when ReceivedAt is set, resolves the
// report's day/time groups against it.
func DecodeReport(r wx.RawReport) (wx.Record, error) {
	if strings.TrimSpace(r.RawText) == "" {
		return nil, fmt.Errorf("%w: empty %s text", wx.ErrGrammarMismatch, r.Kind)
	}

	switch r.Kind {
	case wx.KindObservation:
		obs, err := DecodeObservation(r.RawText)
		if err != nil {
			return nil, err
		}
		obs.ObservedAt = obs.Issued.Resolve(r.ReceivedAt)
		return obs, nil

	case wx.KindForecast:
		f, err := DecodeForecast(r.RawText)
		if err != nil {
			return nil, err
		}
		f.IssuedAt = f.Issued.Resolve(r.ReceivedAt)
		return f, nil

	case wx.KindPilotReport:
		return DecodePilotReport(r.RawText)

	case wx.KindHazardAdvisory:
		return DecodeHazardAdvisory(r.RawText)

	case wx.KindNotice:
		return notam.NewExtractor(nil).Extract(r.RawText)
	}
	return nil, fmt.Errorf("%w: %q", wx.ErrUnsupportedProduct, r.Kind)
}
