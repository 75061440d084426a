// Package bigquery stores expenses and model outputs in a BigQuery dataset.
// Writes go through DML so rows are immediately visible to DELETE and UPDATE.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// Store implements domain.Repository on top of a shared BigQuery client.
type Store struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewStore creates a client for projectID and binds it to datasetID.
func NewStore(ctx context.Context, projectID, datasetID string) (*Store, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating client: %w", err)
	}
	return NewStoreWithClient(client, projectID, datasetID), nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client *bigquery.Client, projectID, datasetID string) *Store {
	return &Store{client: client, projectID: projectID, datasetID: datasetID}
}

// Close closes the BigQuery client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// table returns the fully qualified, backquoted name of a table in the dataset.
func (s *Store) table(name string) string {
	return tableRef(s.projectID, s.datasetID, name)
}

func tableRef(projectID, datasetID, name string) string {
	return "`" + projectID + "." + datasetID + "." + name + "`"
}

// runDML runs a statement and waits for it, returning the job status.
func runDML(ctx context.Context, client *bigquery.Client, sql string, params []bigquery.QueryParameter) (*bigquery.JobStatus, error) {
	q := client.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return nil, fmt.Errorf("job error: %w", err)
	}
	return status, nil
}

// affectedRows reads the DML row count from a finished job.
func affectedRows(status *bigquery.JobStatus) int64 {
	if status == nil || status.Statistics == nil {
		return 0
	}
	qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics)
	if !ok {
		return 0
	}
	return qs.NumDMLAffectedRows
}
