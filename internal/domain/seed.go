package domain

// SeedDetections returns the demo dataset shown when the feed is empty,
// newest first. Severities were assigned on the physical test box and are
// kept as supplied rather than reclassified.
func SeedDetections() []Detection {
	return []Detection{
		{
			ID:        "run-001",
			Depth:     3.9,
			Severity:  SeverityHigh,
			Timestamp: "2024-05-12T15:04:22Z",
			Location:  "Caja de pruebas - carril A",
			Raw:       "BACHE 3.90",
			Vehicle:   "Auto demo",
			Source:    "HC-05",
		},
		{
			ID:        "run-002",
			Depth:     2.4,
			Severity:  SeverityMedium,
			Timestamp: "2024-05-12T15:03:58Z",
			Location:  "Caja de pruebas - carril B",
			Raw:       "BACHE 2.40",
			Vehicle:   "Auto demo",
			Source:    "HC-05",
		},
		{
			ID:        "run-003",
			Depth:     4.6,
			Severity:  SeverityHigh,
			Timestamp: "2024-05-12T15:03:13Z",
			Location:  "Caja de pruebas - carril A",
			Raw:       "BACHE 4.60",
			Vehicle:   "Auto demo",
			Source:    "HC-05",
		},
		{
			ID:        "run-004",
			Depth:     1.4,
			Severity:  SeverityLow,
			Timestamp: "2024-05-12T15:02:41Z",
			Location:  "Sección plana (control)",
			Raw:       "BACHE 1.40",
			Vehicle:   "Auto demo",
			Source:    "USB",
		},
		{
			ID:        "run-005",
			Depth:     2.1,
			Severity:  SeverityMedium,
			Timestamp: "2024-05-12T15:02:05Z",
			Location:  "Caja de pruebas - carril C",
			Raw:       "BACHE 2.10",
			Vehicle:   "Auto demo",
			Source:    "USB",
		},
	}
}

// SeedReadings returns the demo dataset as readings with every field set,
// suitable for posting to the API or normalizing.
func SeedReadings() []Reading {
	seeds := SeedDetections()
	out := make([]Reading, len(seeds))
	for i, d := range seeds {
		out[i] = ReadingFrom(d)
	}
	return out
}

// ReadingFrom turns a canonical record back into a fully-specified reading.
func ReadingFrom(d Detection) Reading {
	sev := d.Severity
	return Reading{
		Depth:      d.Depth,
		DepthValid: validDepth(d.Depth),
		ID:         &d.ID,
		Severity:   &sev,
		Timestamp:  &d.Timestamp,
		Location:   &d.Location,
		Raw:        &d.Raw,
		Vehicle:    &d.Vehicle,
		Source:     &d.Source,
	}
}
