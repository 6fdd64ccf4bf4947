// Package geo provides great-circle distance and circular geofence tests.
package geo

import (
	"math"

	"ecoproof-backend/internal/models"
)

// EarthRadiusMeters is the mean Earth radius used for haversine distances.
const EarthRadiusMeters = 6_371_000.0

// Distance returns the haversine great-circle distance in meters.
func Distance(a, b models.Coordinates) float64 {
	phi1 := toRadians(a.Latitude)
	phi2 := toRadians(b.Latitude)
	dPhi := toRadians(b.Latitude - a.Latitude)
	dLambda := toRadians(b.Longitude - a.Longitude)

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	h := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	// Rounding can push h a hair above 1 for antipodal points.
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Within reports whether point lies inside the circle of radiusMeters around center.
// The boundary itself counts as inside.
func Within(center, point models.Coordinates, radiusMeters float64) bool {
	if radiusMeters < 0 {
		return false
	}
	return Distance(center, point) <= radiusMeters
}

// Offset returns the point reached by travelling distanceMeters from origin
// along the given initial bearing (degrees clockwise from north).
func Offset(origin models.Coordinates, bearingDeg, distanceMeters float64) models.Coordinates {
	delta := distanceMeters / EarthRadiusMeters
	theta := toRadians(bearingDeg)
	phi1 := toRadians(origin.Latitude)
	lambda1 := toRadians(origin.Longitude)

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2),
	)

	return models.Coordinates{
		Latitude:  toDegrees(phi2),
		Longitude: math.Mod(toDegrees(lambda2)+540, 360) - 180,
	}
}

// ValidCoordinates reports whether c is a usable latitude/longitude pair.
func ValidCoordinates(c models.Coordinates) bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
