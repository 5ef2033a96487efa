package storage

import (
	"errors"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

var (
	ErrDuelNotFound                = errors.New("duel not found")
	ErrUserNotFound                = errors.New("user not found")
	ErrApplicationEndpointNotFound = errors.New("application endpoint not found")

	// ErrPairLocked is returned by CreateDuel when the pair already holds an open duel.
	ErrPairLocked = errors.New("pair already has an open duel")

	// ErrConditionFailed is returned when a conditional write did not match the
	// stored record. The write was not applied.
	ErrConditionFailed = errors.New("condition check failed")

	// ErrResultRecorded is returned by RecordDuelResult when the duel's
	// outcomes were already counted.
	ErrResultRecorded = errors.New("duel result already recorded")
)

type Client struct {
	dynamodb *dynamodb.Client
	cfg      config
}

type config struct {
	DuelsTableName                *string
	DuelPairsTableName            *string
	UsersTableName                *string
	UserDuelStatsTableName        *string
	ApplicationEndpointsTableName *string
	ProcessedDuelResultsTableName *string

	ChallengerIndexName *string
	OpponentIndexName   *string
	StatusIndexName     *string
}

func NewClient(dynamoClient *dynamodb.Client) *Client {
	return &Client{
		dynamodb: dynamoClient,
		cfg:      loadConfig(),
	}
}

func loadConfig() config {
	cfg := config{
		DuelsTableName:                aws.String("Duels"),
		DuelPairsTableName:            aws.String("DuelPairs"),
		UsersTableName:                aws.String("Users"),
		UserDuelStatsTableName:        aws.String("UserDuelStats"),
		ApplicationEndpointsTableName: aws.String("ApplicationEndpoints"),
		ProcessedDuelResultsTableName: aws.String("ProcessedDuelResults"),
		ChallengerIndexName:           aws.String("ChallengerIndex"),
		OpponentIndexName:             aws.String("OpponentIndex"),
		StatusIndexName:               aws.String("StatusIndex"),
	}
	if v, ok := os.LookupEnv("DUELS_TABLE_NAME"); ok {
		cfg.DuelsTableName = aws.String(v)
	}
	if v, ok := os.LookupEnv("DUEL_PAIRS_TABLE_NAME"); ok {
		cfg.DuelPairsTableName = aws.String(v)
	}
	if v, ok := os.LookupEnv("USERS_TABLE_NAME"); ok {
		cfg.UsersTableName = aws.String(v)
	}
	if v, ok := os.LookupEnv("USER_DUEL_STATS_TABLE_NAME"); ok {
		cfg.UserDuelStatsTableName = aws.String(v)
	}
	if v, ok := os.LookupEnv("APPLICATION_ENDPOINTS_TABLE_NAME"); ok {
		cfg.ApplicationEndpointsTableName = aws.String(v)
	}
	if v, ok := os.LookupEnv("PROCESSED_DUEL_RESULTS_TABLE_NAME"); ok {
		cfg.ProcessedDuelResultsTableName = aws.String(v)
	}
	if v, ok := os.LookupEnv("DUELS_CHALLENGER_INDEX_NAME"); ok {
		cfg.ChallengerIndexName = aws.String(v)
	}
	if v, ok := os.LookupEnv("DUELS_OPPONENT_INDEX_NAME"); ok {
		cfg.OpponentIndexName = aws.String(v)
	}
	if v, ok := os.LookupEnv("DUELS_STATUS_INDEX_NAME"); ok {
		cfg.StatusIndexName = aws.String(v)
	}
	return cfg
}
