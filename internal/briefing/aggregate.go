package briefing

import (
	"fmt"
	"strings"

	"github.com/skybrief/skybrief/internal/classify"
	"github.com/skybrief/skybrief/internal/wx"
	"github.com/skybrief/skybrief/pkg/polyline"
)

// segments grades each leg as the worse of its endpoints, raised by any
// advisory whose area covers a point sampled along the leg and whose levels
// include the cruise altitude. altitudeFt < 0 means no altitude was given.
func segments(waypoints []WaypointWeather, advisories []advisory, altitudeFt int) []SegmentWeather {
	if len(waypoints) < 2 {
		return []SegmentWeather{}
	}
	out := make([]SegmentWeather, 0, len(waypoints)-1)
	for i := 1; i < len(waypoints); i++ {
		from, to := waypoints[i-1], waypoints[i]
		seg := SegmentWeather{
			From:     from.Waypoint.ID,
			To:       to.Waypoint.ID,
			Severity: wx.MaxSeverity(from.Severity, to.Severity),
		}
		if from.Location != nil && to.Location != nil {
			leg := []polyline.Coordinate{*from.Location, *to.Location}
			seg.DistanceNM = polyline.LengthNM(leg)
			samples := polyline.Sample(leg, segmentSampleNM)
			for _, a := range advisories {
				if !covers(a.area, samples) {
					continue
				}
				if !a.atAltitude(altitudeFt) {
					seg.Bypassed = append(seg.Bypassed, a.id)
					continue
				}
				seg.Advisories = append(seg.Advisories, a.id)
				seg.Severity = wx.MaxSeverity(seg.Severity, a.assessment.Severity)
			}
		}
		out = append(out, seg)
	}
	return out
}

func covers(area, samples []polyline.Coordinate) bool {
	for _, p := range samples {
		if polyline.Contains(area, p) {
			return true
		}
	}
	return false
}

// routeFlightRules is the worst category among waypoints with weather.
func routeFlightRules(waypoints []WaypointWeather) wx.FlightRules {
	var rules []wx.FlightRules
	for _, w := range waypoints {
		if w.Status == StatusAvailable {
			rules = append(rules, w.FlightRules)
		}
	}
	return wx.WorstFlightRules(rules...)
}

func overallSeverity(waypoints []WaypointWeather, segs []SegmentWeather) wx.Severity {
	sev := wx.SeverityClear
	for _, w := range waypoints {
		sev = wx.MaxSeverity(sev, w.Severity)
	}
	for _, s := range segs {
		sev = wx.MaxSeverity(sev, s.Severity)
	}
	return sev
}

// alerts lists every SEVERE waypoint, every SEVERE segment not explained by
// a SEVERE endpoint, and every SEVERE notice in force.
func alerts(waypoints []WaypointWeather, segs []SegmentWeather, notices []*wx.Notam) []Alert {
	out := []Alert{}
	for _, w := range waypoints {
		if w.Severity < wx.SeveritySevere {
			continue
		}
		out = append(out, Alert{
			ID:       "wx-" + w.Waypoint.ID,
			Kind:     AlertWaypoint,
			Location: w.Waypoint.ID,
			Severity: w.Severity,
			Reason:   w.Reason,
			Detail:   fmt.Sprintf("%s at %s", w.Reason, w.Station),
		})
	}

	// Segment i joins waypoints i and i+1.
	for i, s := range segs {
		if s.Severity < wx.SeveritySevere ||
			waypoints[i].Severity >= wx.SeveritySevere ||
			waypoints[i+1].Severity >= wx.SeveritySevere {
			continue
		}
		out = append(out, Alert{
			ID:       fmt.Sprintf("seg-%s-%s", s.From, s.To),
			Kind:     AlertSegment,
			Location: s.From + "-" + s.To,
			Severity: s.Severity,
			Reason:   classify.ReasonHazardAdvisory,
			Detail:   strings.Join(s.Advisories, ", "),
		})
	}

	for _, n := range notices {
		if n.Severity < wx.SeveritySevere {
			continue
		}
		out = append(out, Alert{
			ID:       "notam-" + strings.ReplaceAll(n.ID, " ", "-"),
			Kind:     AlertNotice,
			Location: n.Station,
			Severity: n.Severity,
			Reason:   classify.ReasonNotice,
			Detail:   n.Description,
		})
	}
	return out
}

func count(b *RouteBriefing) Counts {
	c := Counts{
		Waypoints:  len(b.Waypoints),
		Segments:   len(b.Segments),
		Advisories: len(b.Advisories),
		Notices:    len(b.Notices),
		Alerts:     len(b.Alerts),
	}
	for _, w := range b.Waypoints {
		switch {
		case w.Status == StatusUnavailable:
			c.Unavailable++
		case w.Severity == wx.SeveritySevere:
			c.Severe++
		case w.Severity == wx.SeveritySignificant:
			c.Significant++
		}
	}
	for _, s := range b.Segments {
		if s.Severity == wx.SeveritySevere {
			c.SevereSegments++
		}
	}
	return c
}

// summarize renders a one-line summary from the counts alone.
func summarize(sev wx.Severity, c Counts) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Route %s: %d %s", sev, c.Waypoints, plural(c.Waypoints, "waypoint"))
	if c.Severe > 0 || c.Significant > 0 {
		fmt.Fprintf(&sb, ", %d severe, %d significant", c.Severe, c.Significant)
	}
	if c.Unavailable > 0 {
		fmt.Fprintf(&sb, ", %d without data", c.Unavailable)
	}
	if c.SevereSegments > 0 {
		fmt.Fprintf(&sb, "; %d severe %s", c.SevereSegments, plural(c.SevereSegments, "segment"))
	}
	if c.Alerts > 0 {
		fmt.Fprintf(&sb, "; %d %s", c.Alerts, plural(c.Alerts, "alert"))
	} else {
		sb.WriteString("; no alerts")
	}
	sb.WriteString(".")
	return sb.String()
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
