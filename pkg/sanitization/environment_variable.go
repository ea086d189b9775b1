package sanitization

var (
	// EnvVarKeySanitizer produces keys usable in a shell or container environment.
	EnvVarKeySanitizer = NewSanitizer(0,
		Strip(`^[^a-zA-Z]+`),
		Replace(`[-\s]+`, "_"),
		Strip(`[^a-zA-Z0-9_]+`),
	)

	// LogicalIdSanitizer keeps only the characters a CloudFormation logical id allows.
	LogicalIdSanitizer = NewSanitizer(255, Strip(`[^a-zA-Z0-9]+`))
)
