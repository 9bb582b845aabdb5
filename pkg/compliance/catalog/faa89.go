package catalog

// faa89Framework is the Part 89 Remote ID catalog, V1: fifteen controls in
// five categories of three.
func faa89Framework() Framework {
	return Framework{
		ID:      FAA89,
		Name:    "FAA Part 89 (Remote ID)",
		Version: "1.0.0",
		Wired:   true,
		Controls: []ControlDefinition{
			// RID broadcast integrity
			{
				ID:            "89.1",
				Title:         "RID Broadcast Enabled",
				Intent:        "All drones in the fleet broadcast Remote ID during active operations.",
				EvidenceHints: []string{"RID transmission logs", "Flight telemetry", "Network broadcast capture"},
				Weight:        1,
			},
			{
				ID:            "89.2",
				Title:         "RID Data Accuracy",
				Intent:        "Broadcast payload includes correct drone ID, location, altitude, and velocity.",
				EvidenceHints: []string{"Telemetry vs RID reconciliation logs", "Automated validation reports"},
				Weight:        1,
			},
			{
				ID:            "89.3",
				Title:         "Tamper Protection",
				Intent:        "RID broadcast cannot be disabled or altered by unauthorized users.",
				EvidenceHints: []string{"Configuration lock logs", "Role-based access records"},
				Weight:        1,
			},
			// Registration and aircraft identity
			{
				ID:            "89.4",
				Title:         "Aircraft Registration Verified",
				Intent:        "Each drone is registered with the FAA and registration status is current.",
				EvidenceHints: []string{"FAA registration records", "Fleet registry sync"},
				Weight:        1,
			},
			{
				ID:            "89.5",
				Title:         "Unique Drone Identity Mapping",
				Intent:        "A verified mapping exists between each physical drone and its RID serial.",
				EvidenceHints: []string{"Drone ↔ RID serial mapping table"},
				Weight:        0.75,
			},
			{
				ID:            "89.6",
				Title:         "Fleet Inventory Maintained",
				Intent:        "An up-to-date asset inventory tracks all drones across their lifecycle.",
				EvidenceHints: []string{"Asset inventory", "Lifecycle logs"},
				Weight:        1,
			},
			// Operational transparency
			{
				ID:            "89.7",
				Title:         "RID Available to Authorities",
				Intent:        "RID data is broadcast in a format accessible to law enforcement and FAA systems.",
				EvidenceHints: []string{"Broadcast test logs", "Compliance validation runs"},
				Weight:        1,
			},
			{
				ID:            "89.8",
				Title:         "Historical RID Retention",
				Intent:        "RID broadcast records are retained for post-event investigation and audit.",
				EvidenceHints: []string{"RID storage snapshots", "Retention policy"},
				Weight:        1,
			},
			{
				ID:            "89.9",
				Title:         "Time Synchronization",
				Intent:        "Drone timestamps are synchronized to an authoritative time source (NTP/PTP).",
				EvidenceHints: []string{"NTP logs", "Timestamp validation"},
				Weight:        0.5,
			},
			// Security alignment
			{
				ID:            "89.10",
				Title:         "RID Data Encryption (networked)",
				Intent:        "Where RID data traverses a network path, encryption is enforced in transit.",
				EvidenceHints: []string{"Encryption configs", "TLS validation"},
				Weight:        0.75,
			},
			{
				ID:            "89.11",
				Title:         "Spoofing Detection Capability",
				Intent:        "The platform can detect and alert on suspected RID spoofing events.",
				EvidenceHints: []string{"Threat simulation bundle", "Detection logs"},
				Weight:        1,
			},
			{
				ID:            "89.12",
				Title:         "Unauthorized Drone Detection",
				Intent:        "Anomalous or unauthorized drones in monitored areas trigger alerts.",
				EvidenceHints: []string{"Anomaly alerts", "Geofence violations"},
				Weight:        1,
			},
			// Governance
			{
				ID:            "89.13",
				Title:         "Remote ID Policy Established",
				Intent:        "A formal RID policy is documented, versioned, and accessible to all operators.",
				EvidenceHints: []string{"Policy document", "Version history"},
				Weight:        0.75,
			},
			{
				ID:            "89.14",
				Title:         "Operator RID Training",
				Intent:        "All operators have completed RID-specific training and records are retained.",
				EvidenceHints: []string{"Training completion logs"},
				Weight:        0.75,
			},
			{
				ID:            "89.15",
				Title:         "Readiness Monitoring Process",
				Intent:        "An internal process monitors and reports on RID readiness on a regular cadence.",
				EvidenceHints: []string{"Readiness dashboard snapshots", "Internal audit cadence"},
				Weight:        1,
			},
		},
	}
}
