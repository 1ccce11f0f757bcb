package fingerprint

// DefaultBasisAliases maps common shorthand basis names to their canonical
// spelling. Keys and values are lower case.
func DefaultBasisAliases() map[string]string {
	return map[string]string{
		"sto3g":      "sto-3g",
		"321g":       "3-21g",
		"631g":       "6-31g",
		"631g*":      "6-31g*",
		"631g**":     "6-31g**",
		"631gd":      "6-31g*",
		"631gdp":     "6-31g**",
		"631+g*":     "6-31+g*",
		"631+g**":    "6-31+g**",
		"631++g**":   "6-31++g**",
		"6311g":      "6-311g",
		"6311g*":     "6-311g*",
		"6311g**":    "6-311g**",
		"6311+g*":    "6-311+g*",
		"6311+g**":   "6-311+g**",
		"6311++g**":  "6-311++g**",
		"pvdz":       "cc-pvdz",
		"pvtz":       "cc-pvtz",
		"pvqz":       "cc-pvqz",
		"pv5z":       "cc-pv5z",
		"ccpvdz":     "cc-pvdz",
		"ccpvtz":     "cc-pvtz",
		"ccpvqz":     "cc-pvqz",
		"ccpv5z":     "cc-pv5z",
		"avdz":       "aug-cc-pvdz",
		"avtz":       "aug-cc-pvtz",
		"avqz":       "aug-cc-pvqz",
		"av5z":       "aug-cc-pv5z",
		"augccpvdz":  "aug-cc-pvdz",
		"augccpvtz":  "aug-cc-pvtz",
		"augccpvqz":  "aug-cc-pvqz",
		"aug-ccpvdz": "aug-cc-pvdz",
		"aug-ccpvtz": "aug-cc-pvtz",
		"svp":        "def2-svp",
		"tzvp":       "def2-tzvp",
		"tzvpp":      "def2-tzvpp",
		"qzvp":       "def2-qzvp",
		"qzvpp":      "def2-qzvpp",
		"def2svp":    "def2-svp",
		"def2tzvp":   "def2-tzvp",
		"def2tzvpp":  "def2-tzvpp",
		"def2qzvp":   "def2-qzvp",
		"def2qzvpp":  "def2-qzvpp",
	}
}

// DefaultMethodAliases maps alternative method spellings to the engine's
// canonical name.
func DefaultMethodAliases() map[string]string {
	return map[string]string{
		"scf":          "hf",
		"hartree-fock": "hf",
		"pbeh":         "pbe0",
		"pbe1pbe":      "pbe0",
		"ccsd-t":       "ccsd(t)",
	}
}
