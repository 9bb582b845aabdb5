package catalog

// faa107Framework is the Part 107 operational-certification catalog, V1.
func faa107Framework() Framework {
	return Framework{
		ID:      FAA107,
		Name:    "FAA Part 107",
		Version: "1.0.0",
		Wired:   true,
		Controls: []ControlDefinition{
			{
				ID:            "107.1",
				Title:         "Pilot certification & currency",
				Intent:        "Ensure remote pilots are appropriately certified and maintain required currency/training.",
				EvidenceHints: []string{"Remote Pilot Certificate", "Training records", "Recurrent training log"},
				Weight:        1,
			},
			{
				ID:            "107.2",
				Title:         "Operational authorization tracking",
				Intent:        "Document waivers/authorizations (e.g., night ops, controlled airspace) and ensure current approvals.",
				EvidenceHints: []string{"FAA waiver/COA", "LAANC logs", "Ops approval register"},
				Weight:        1,
			},
			{
				ID:            "107.3",
				Title:         "Pre-flight risk assessment",
				Intent:        "Run and retain a structured pre-flight risk assessment (weather, airspace, mission profile).",
				EvidenceHints: []string{"Pre-flight checklist", "Risk assessment form", "Mission brief"},
				Weight:        1,
			},
			{
				ID:            "107.4",
				Title:         "Flight log retention & integrity",
				Intent:        "Maintain tamper-evident flight logs for audit and incident investigation.",
				EvidenceHints: []string{"Flight logs", "Hash / signature records", "Export bundles"},
				Weight:        1,
			},
			{
				ID:            "107.5",
				Title:         "Maintenance & airworthiness records",
				Intent:        "Track maintenance actions, defects, and readiness-to-fly status per asset.",
				EvidenceHints: []string{"Maintenance logs", "Defect reports", "Repair tickets"},
				Weight:        1,
			},
			{
				ID:            "107.6",
				Title:         "Incident reporting workflow",
				Intent:        "Have an incident process and evidence package for reportable events and investigations.",
				EvidenceHints: []string{"Incident records", "Forensics bundle exports", "Corrective actions"},
				Weight:        1,
			},
			{
				ID:            "107.7",
				Title:         "Remote ID compliance (cross-reference Part 89)",
				Intent:        "Ensure Remote ID status is tracked/verified for applicable operations.",
				EvidenceHints: []string{"Remote ID declaration", "RID module status", "RID flight evidence"},
				Weight:        0.5,
			},
			{
				ID:            "107.8",
				Title:         "Access control & operator accountability",
				Intent:        "Restrict system access and attribute actions to authenticated users (non-repudiation).",
				EvidenceHints: []string{"JWT auth logs", "Role guardrails", "Operator assignment events"},
				Weight:        1,
			},
			{
				ID:            "107.9",
				Title:         "Airspace awareness & geofencing checks",
				Intent:        "Validate airspace constraints and geofencing where applicable.",
				EvidenceHints: []string{"Airspace checks", "Geofence config", "NOTAM checks"},
				Weight:        1,
			},
			{
				ID:            "107.10",
				Title:         "Lost-link / contingency procedures",
				Intent:        "Document and validate contingency actions (RTH, fail-safe, link-loss behavior).",
				EvidenceHints: []string{"Contingency SOP", "RTH test record", "Mitigation events"},
				Weight:        1,
			},
			{
				ID:            "107.11",
				Title:         "Crew brief & comms plan",
				Intent:        "Ensure crew roles, comms plan, and mission expectations are documented.",
				EvidenceHints: []string{"Crew brief", "Comms plan", "Checklist signoff"},
				Weight:        0.75,
			},
			{
				ID:            "107.12",
				Title:         "Data protection & storage hygiene",
				Intent:        "Protect flight data, telemetry, and evidence artifacts from unauthorized access/alteration.",
				EvidenceHints: []string{"Encryption at rest/in transit", "Access logs", "Retention policy"},
				Weight:        1,
			},
			{
				ID:            "107.13",
				Title:         "Third-party component risk tracking",
				Intent:        "Track vendor/firmware versions and known issues that may affect mission safety/security.",
				EvidenceHints: []string{"Firmware inventory", "Vendor advisories", "Patch records"},
				Weight:        0.75,
			},
			{
				ID:            "107.14",
				Title:         "Training vs production separation",
				Intent:        "Clearly mark training simulations vs real operations and prevent mixing evidence contexts.",
				EvidenceHints: []string{"Training flag in incidents", "Simulation started events", "Policy statement"},
				Weight:        0.75,
			},
			{
				ID:            "107.15",
				Title:         "Audit readiness package generation",
				Intent:        "Generate an audit-friendly \"what happened + evidence\" bundle on demand.",
				EvidenceHints: []string{"Forensics bundle", "Bundle hashing", "Export log"},
				Weight:        1,
			},
		},
	}
}
