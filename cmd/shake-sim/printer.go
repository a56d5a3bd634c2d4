package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
)

type eventView struct {
	Generation uint64  `json:"generation"`
	Intensity  float64 `json:"intensity"`
	RadiusKm   float64 `json:"radius_km"`
	Results    []struct {
		CandidateID string  `json:"candidate_id"`
		DistanceKm  float64 `json:"distance_km"`
		Score       int     `json:"score"`
	} `json:"results"`
	Location *struct {
		Point struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"point"`
		Degraded bool   `json:"degraded"`
		Address  string `json:"address"`
	} `json:"location"`
	Error *struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	} `json:"error"`
}

type printer struct {
	w       io.Writer
	listen  *color.Color
	trigger *color.Color
	resolve *color.Color
	ok      *color.Color
	bad     *color.Color
	dim     *color.Color
}

func newPrinter(w io.Writer) *printer {
	return &printer{
		w:       w,
		listen:  color.New(color.FgCyan),
		trigger: color.New(color.FgYellow, color.Bold),
		resolve: color.New(color.FgBlue),
		ok:      color.New(color.FgGreen, color.Bold),
		bad:     color.New(color.FgRed, color.Bold),
		dim:     color.New(color.FgHiBlack),
	}
}

func (p *printer) note(format string, args ...any) {
	p.dim.Fprintf(p.w, "  "+format+"\n", args...)
}

func (p *printer) fail(format string, args ...any) {
	p.bad.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) event(ev sseEvent) {
	var v eventView
	if err := json.Unmarshal([]byte(ev.data), &v); err != nil {
		p.fail("undecodable %s event: %v", ev.name, err)
		return
	}

	switch ev.name {
	case "listening":
		p.listen.Fprintf(p.w, "● listening (generation %d, radius %.1f km)\n", v.Generation, v.RadiusKm)
	case "triggered":
		p.trigger.Fprintf(p.w, "⚡ triggered at %.1f m/s²\n", v.Intensity)
	case "resolving":
		p.resolve.Fprintln(p.w, "… resolving companions")
	case "completed":
		p.ok.Fprintf(p.w, "✔ completed: %d companion(s)\n", len(v.Results))
		if l := v.Location; l != nil {
			where := fmt.Sprintf("%.4f, %.4f", l.Point.Lat, l.Point.Lng)
			if l.Address != "" {
				where = l.Address
			}
			if l.Degraded {
				where += " (fallback location)"
			}
			p.note("from %s", where)
		}
		for i, r := range v.Results {
			fmt.Fprintf(p.w, "  %2d. %-16s %5.1f km  score %3d\n", i+1, r.CandidateID, r.DistanceKm, r.Score)
		}
	case "failed":
		kind, msg := "unknown", ""
		if v.Error != nil {
			kind, msg = v.Error.Kind, v.Error.Error
		}
		p.bad.Fprintf(p.w, "✘ failed (%s) %s\n", kind, msg)
	default:
		p.note("%s", ev.name)
	}
}
