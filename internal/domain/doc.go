// Package domain models pothole depth readings from an HC-SR04 ultrasonic
// sensor mounted under a vehicle.
//
// # Data Source
//
// An Arduino sketch compares each echo distance with a calibrated baseline
// (the sensor-to-road distance over flat pavement) and, when the difference
// exceeds the sensor noise, prints a frame over an HC-05 Bluetooth serial
// link at 9600 baud:
//
//	"BACHE <depth>\r\n"  →  e.g. "BACHE 3.90"
//	means a depression 3.90 cm deeper than the baseline.
//
// The bridge (cmd/bridge) reads those frames from /dev/rfcommN or a USB
// serial device and posts them to the monitor API as JSON readings. Readings
// can also arrive as one object or an array on the Kafka source topic.
//
// # Readings and Detections
//
// A [Reading] is the raw, partially-specified input: only depth is required.
// A [Detection] is the canonical record with every field populated. The
// [Normalizer] is the only way to turn one into the other; it rounds depth to
// two decimals and fills absent fields:
//
//	id        random UUID (or "run-<unixms>-<hex>" when no random source)
//	timestamp current instant, "2006-01-02T15:04:05.000Z"
//	raw       "BACHE <depth %.2f>"
//	location  "Trayecto sin etiquetar"
//	vehicle   "Vehículo demo"
//	source    "HC-05"
//
// Readings whose depth is missing, not a JSON number, non-finite or negative
// are invalid and dropped before normalization.
//
// # Severity classification
//
// Thresholds are multiples of the sensor noise so recalibrating the rig
// rescales them without code changes:
//
//	depth ≥ 2×noise  Alta
//	depth ≥ noise    Media
//	otherwise        Baja
//
// With the default calibration (baseline 8.5 cm, noise 3 cm) that is
// Media from 3 cm and Alta from 6 cm. A severity supplied by the sender is
// kept as-is.
package domain
