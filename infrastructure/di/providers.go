package di

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"auditgraph/application/ports"
	"auditgraph/application/services"
	"auditgraph/infrastructure/config"
	"auditgraph/infrastructure/identity"
	"auditgraph/infrastructure/immutable"
	dynamostore "auditgraph/infrastructure/persistence/dynamodb"
	"auditgraph/infrastructure/persistence/memory"
	"auditgraph/infrastructure/vault"
)

// Container holds all application dependencies
type Container struct {
	Config        *config.Config
	Logger        *zap.Logger
	VertexStore   ports.VertexStore
	Vault         ports.Vault
	Identity      ports.IdentityProvider
	ImmutableLog  ports.ImmutableLog
	VertexService *services.VertexService
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideVertexStore creates the configured vertex store
func ProvideVertexStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.VertexStore, error) {
	if cfg.StorageDriver == config.StorageDriverDynamoDB {
		awsCfg, err := ProvideAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return dynamostore.NewVertexStore(ProvideDynamoDBClient(awsCfg), cfg.DynamoDBTable, logger), nil
	}
	return memory.NewVertexStore(), nil
}

// ProvideVault creates the vault
func ProvideVault() ports.Vault {
	return vault.NewMemoryVault()
}

// ProvideIdentityProvider creates the identity provider
func ProvideIdentityProvider() ports.IdentityProvider {
	return identity.NewProvider()
}

// ProvideImmutableLog creates the immutable log
func ProvideImmutableLog() ports.ImmutableLog {
	return immutable.NewMemoryLog()
}

// ProvideServiceOptions maps configuration onto service options
func ProvideServiceOptions(cfg *config.Config) services.Options {
	return services.Options{
		VaultKeyID:           cfg.VaultKeyID,
		AssertionMethodID:    cfg.AssertionMethodID,
		EnableIntegrityCheck: cfg.EnableIntegrityCheck,
	}
}

// ProvideVertexService creates the vertex service
func ProvideVertexService(
	store ports.VertexStore,
	vlt ports.Vault,
	idp ports.IdentityProvider,
	log ports.ImmutableLog,
	options services.Options,
	logger *zap.Logger,
) *services.VertexService {
	return services.NewVertexService(store, vlt, idp, log, options, logger)
}

// NewContainer wires the full dependency graph by hand. It mirrors the
// wire-generated initializer for callers that embed the module directly.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}

	store, err := ProvideVertexStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	vlt := ProvideVault()
	idp := ProvideIdentityProvider()
	log := ProvideImmutableLog()
	options := ProvideServiceOptions(cfg)

	return &Container{
		Config:        cfg,
		Logger:        logger,
		VertexStore:   store,
		Vault:         vlt,
		Identity:      idp,
		ImmutableLog:  log,
		VertexService: ProvideVertexService(store, vlt, idp, log, options, logger),
	}, nil
}
