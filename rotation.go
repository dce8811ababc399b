package rendezvous

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

const (
	// EarthRotationRate is the average Earth rotation rate in radians per second.
	EarthRotationRate = 7.2921158553e-5
	j2000             = 2451545.0
)

// J2000 is the default scenario epoch.
var J2000 = time.Date(2000, time.January, 1, 12, 0, 0, 0, time.UTC)

// R1 rotation about the 1st axis.
func R1(x float64) Mat3 {
	s, c := math.Sincos(x)
	return Mat3{{1, 0, 0}, {0, c, s}, {0, -s, c}}
}

// R2 rotation about the 2nd axis.
func R2(x float64) Mat3 {
	s, c := math.Sincos(x)
	return Mat3{{c, 0, -s}, {0, 1, 0}, {s, 0, c}}
}

// R3 rotation about the 3rd axis.
func R3(x float64) Mat3 {
	s, c := math.Sincos(x)
	return Mat3{{c, s, 0}, {-s, c, 0}, {0, 0, 1}}
}

// GMST returns the Greenwich mean sidereal time in radians (Vallado, eq. 3-47).
func GMST(t time.Time) float64 {
	jd := julian.TimeToJD(t.UTC())
	tUT1 := (jd - j2000) / 36525.0
	gmstSec := 67310.54841 +
		(876600*3600+8640184.812866)*tUT1 +
		0.093104*tUT1*tUT1 -
		6.2e-6*tUT1*tUT1*tUT1
	gmstSec = math.Mod(gmstSec, 86400.0)
	if gmstSec < 0 {
		gmstSec += 86400.0
	}
	return gmstSec / 86400.0 * 2 * math.Pi
}

// ECI2ECEF converts the provided ECI vector to ECEF for the θgst given in radians.
func ECI2ECEF(R Vec3, θgst float64) Vec3 {
	return R3(θgst).MulVec(R)
}

// ECEF2ECI converts the provided ECEF vector to ECI for the θgst given in radians.
func ECEF2ECI(R Vec3, θgst float64) Vec3 {
	return ECI2ECEF(R, -θgst)
}

// ECI2ECEFState converts a full state, removing the Earth rotation from the velocity.
func ECI2ECEFState(s State, θgst float64) State {
	rot := R3(θgst)
	r := rot.MulVec(s.R)
	ω := Vec3{0, 0, EarthRotationRate}
	return State{R: r, V: rot.MulVec(s.V).Sub(ω.Cross(r))}
}
