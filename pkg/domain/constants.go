package domain

// Document limits enforced by ValidateDocument.
const (
	MaxSections       = 200
	MaxSectionBytes   = 64 * 1024
	MaxSlugLength     = 64
	MaxBranchLength   = 128
	MaxIdentifierSize = 128
)
