package funnels

import "math"

// Inconclusive is the winner of a comparison without significance.
const Inconclusive = "inconclusive"

const zCritical = 1.96

// Variant is one side of an A/B comparison.
type Variant struct {
	FunnelID       string  `json:"funnel_id"`
	FunnelName     string  `json:"funnel_name"`
	SampleSize     int     `json:"sample_size"`
	Converted      int     `json:"converted"`
	ConversionRate float64 `json:"conversion_rate"`
}

// Comparison is a two-proportion z-test between two funnel analyses.
type Comparison struct {
	A           Variant `json:"a"`
	B           Variant `json:"b"`
	Lift        float64 `json:"lift"`
	ZScore      float64 `json:"z_score"`
	Significant bool    `json:"significant"`
	Winner      string  `json:"winner"`
}

// Compare tests whether the overall conversion rates differ at 95%
// confidence. Lift is B relative to A, 0 when A converts nobody.
func Compare(a, b Analysis) Comparison {
	va := variantOf(a)
	vb := variantOf(b)
	p1, p2 := va.ConversionRate, vb.ConversionRate

	var variance float64
	if va.SampleSize > 0 {
		variance += p1 * (1 - p1) / float64(va.SampleSize)
	}
	if vb.SampleSize > 0 {
		variance += p2 * (1 - p2) / float64(vb.SampleSize)
	}
	se := math.Sqrt(variance)

	var z float64
	if se > 0 {
		z = math.Abs(p1-p2) / se
	}
	var lift float64
	if p1 > 0 {
		lift = (p2 - p1) / p1
	}

	c := Comparison{A: va, B: vb, Lift: lift, ZScore: z, Significant: z > zCritical, Winner: Inconclusive}
	if c.Significant {
		if p1 > p2 {
			c.Winner = va.FunnelID
		} else {
			c.Winner = vb.FunnelID
		}
	}
	return c
}

func variantOf(a Analysis) Variant {
	return Variant{
		FunnelID:       a.FunnelID,
		FunnelName:     a.FunnelName,
		SampleSize:     a.TotalJourneys,
		Converted:      a.ConvertedJourneys,
		ConversionRate: a.OverallConversionRate,
	}
}
