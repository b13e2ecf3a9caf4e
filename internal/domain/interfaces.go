package domain

import (
	"context"
)

// StatementStore queries the causal-knowledge statement database
type StatementStore interface {
	GetStatements(ctx context.Context, query StatementQuery) ([]Statement, error)
}

// CancerGenomics queries the cancer genomics portal
type CancerGenomics interface {
	// ListStudies returns the ids of all studies whose id starts with prefix.
	ListStudies(ctx context.Context, prefix string) ([]string, error)
	// GetSequencedCaseCount returns the number of sequenced cases in a study.
	GetSequencedCaseCount(ctx context.Context, studyID string) (int, error)
	// GetMutations returns mutation records for genes in a study.
	GetMutations(ctx context.Context, studyID string, genes []string) ([]MutationRecord, error)
}

// NameStandardizer maps a database id to an official name
type NameStandardizer interface {
	// StandardName returns the official symbol for id in namespace ns. It
	// returns "" with a nil error when no standard name is known.
	StandardName(ctx context.Context, ns, id string) (string, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetExternalAPIConfig() *ExternalAPIConfig
	GetGatewayConfig() *GatewayConfig
	Reload() error
	Validate() error
}
