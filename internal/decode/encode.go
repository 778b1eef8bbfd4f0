package decode

import (
	"fmt"
	"math"
	"strings"

	"github.com/skybrief/skybrief/internal/wx"
)

// EncodeObservation re-emits an observation in canonical token order. Wind
// speeds are written in knots. Decoding the result yields the same fields.
func EncodeObservation(o *wx.Observation) string {
	var parts []string
	if o.Type != "" {
		parts = append(parts, o.Type)
	}
	parts = append(parts, o.Station)
	if !o.Issued.IsZero() {
		parts = append(parts, o.Issued.String())
	}
	if o.Corrected {
		parts = append(parts, "COR")
	}
	if o.Auto {
		parts = append(parts, "AUTO")
	}

	parts = append(parts, encodeConditions(o.Conditions, o.RunwayVisualRange)...)

	if t, ok := o.Temperature.Get(); ok {
		group := encodeTemp(t) + "/"
		if d, ok := o.DewPoint.Get(); ok {
			group += encodeTemp(d)
		}
		parts = append(parts, group)
	}
	if a, ok := o.Altimeter.Get(); ok {
		if a.Unit == "hPa" {
			parts = append(parts, fmt.Sprintf("Q%04d", int(math.Round(a.Value))))
		} else {
			parts = append(parts, fmt.Sprintf("A%04d", int(math.Round(a.Value*100))))
		}
	}
	if o.Remarks != "" {
		parts = append(parts, "RMK", o.Remarks)
	}
	return strings.Join(parts, " ")
}

func encodeConditions(c wx.Conditions, rvr []string) []string {
	var parts []string
	if w, ok := c.Wind.Get(); ok {
		parts = append(parts, encodeWind(w)...)
	}
	if c.CAVOK {
		parts = append(parts, "CAVOK")
	} else if v, ok := c.Visibility.Get(); ok {
		parts = append(parts, encodeVisibility(v))
	}
	parts = append(parts, rvr...)
	for _, p := range c.Weather {
		parts = append(parts, p.Raw)
	}
	if layers, ok := c.Sky.Get(); ok && !c.CAVOK {
		if len(layers) == 0 {
			parts = append(parts, "CLR")
		}
		for _, l := range layers {
			parts = append(parts, fmt.Sprintf("%s%03d%s", l.Cover, l.BaseFt/100, l.CloudType))
		}
	}
	return parts
}

func encodeWind(w wx.Wind) []string {
	if w.Calm {
		return []string{"00000KT"}
	}
	dir := fmt.Sprintf("%03d", w.Direction)
	if w.Variable {
		dir = "VRB"
	}
	group := fmt.Sprintf("%s%02d", dir, w.SpeedKt)
	if w.GustKt > 0 {
		group += fmt.Sprintf("G%02d", w.GustKt)
	}
	parts := []string{group + "KT"}
	if w.VariableFrom != 0 || w.VariableTo != 0 {
		parts = append(parts, fmt.Sprintf("%03dV%03d", w.VariableFrom, w.VariableTo))
	}
	return parts
}

func encodeVisibility(v wx.Visibility) string {
	if v.Unit == wx.UnitMeters {
		return fmt.Sprintf("%04d", int(math.Round(v.Value)))
	}
	prefix := ""
	switch {
	case v.LessThan:
		prefix = "M"
	case v.GreaterThan:
		prefix = "P"
	}
	whole := math.Floor(v.Value)
	frac := v.Value - whole
	if frac == 0 {
		return fmt.Sprintf("%s%dSM", prefix, int(whole))
	}
	for _, den := range []int{2, 4, 8, 16} {
		num := frac * float64(den)
		if math.Abs(num-math.Round(num)) < 1e-9 {
			f := fmt.Sprintf("%d/%dSM", int(math.Round(num)), den)
			if whole == 0 {
				return prefix + f
			}
			return fmt.Sprintf("%s%d %s", prefix, int(whole), f)
		}
	}
	return fmt.Sprintf("%s%dSM", prefix, int(math.Round(v.Value)))
}

func encodeTemp(t int) string {
	if t < 0 {
		return fmt.Sprintf("M%02d", -t)
	}
	return fmt.Sprintf("%02d", t)
}
