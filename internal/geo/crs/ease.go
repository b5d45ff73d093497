package crs

import (
	"math"

	"github.com/wroge/wgs84"
)

const deg = math.Pi / 180

// cylindricalEqualArea is the normal-aspect ellipsoidal Lambert cylindrical
// equal-area projection with standard parallel latTS, as used by EASE-Grid
// 2.0 (Snyder 10-15, 10-16).
type cylindricalEqualArea struct {
	latTS float64
}

func (p cylindricalEqualArea) params(s wgs84.Spheroid) (a, e2, k0 float64) {
	f := 1 / s.Fi()
	e2 = f * (2 - f)
	sin := math.Sin(p.latTS * deg)
	return s.A(), e2, math.Cos(p.latTS*deg) / math.Sqrt(1-e2*sin*sin)
}

// authalic q (Snyder 3-12)
func authalicQ(e2, sinPhi float64) float64 {
	e := math.Sqrt(e2)
	es := e * sinPhi
	return (1 - e2) * (sinPhi/(1-es*es) - (1/(2*e))*math.Log((1-es)/(1+es)))
}

func (p cylindricalEqualArea) FromLonLat(lon, lat float64, s wgs84.Spheroid) (east, north float64) {
	a, e2, k0 := p.params(s)
	return a * k0 * lon * deg, a * authalicQ(e2, math.Sin(lat*deg)) / (2 * k0)
}

func (p cylindricalEqualArea) ToLonLat(east, north float64, s wgs84.Spheroid) (lon, lat float64) {
	a, e2, k0 := p.params(s)
	e := math.Sqrt(e2)
	q := 2 * north * k0 / a

	// Snyder 3-16, converges in a few steps away from the poles
	phi := math.Asin(math.Max(-1, math.Min(1, q/2)))
	for range 8 {
		sin := math.Sin(phi)
		es := e * sin
		den := 1 - es*es
		phi += den * den / (2 * math.Cos(phi)) *
			(q/(1-e2) - sin/den + 1/(2*e)*math.Log((1-es)/(1+es)))
	}
	return east / (a * k0) / deg, phi / deg
}
