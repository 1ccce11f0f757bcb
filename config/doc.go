// Package config loads the calccache service configuration.
//
// A configuration is a YAML document. Loading applies, in order:
//
//  1. defaults from Default
//  2. strict ${VAR} expansion of the whole file (write $$ for a literal $,
//     including regular expression anchors in classifier rules)
//  3. strict YAML decoding; unknown keys are errors
//  4. secretref:<provider>:<ref> resolution of sensitive fields
//  5. Validate
//
// LoadDotEnv reads .env files into the process environment first, so they
// can feed step 2.
package config
