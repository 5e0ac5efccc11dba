package scheduler

import "context"

// DirectoryRefreshJobID names the job that reloads the tenant directory.
const DirectoryRefreshJobID = "tenant-directory-refresh"

// Refresher is implemented by tenant.CachedDirectory.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefreshJob reloads r on every run so lookups rarely wait on the source.
func RefreshJob(r Refresher) Job {
	return JobFunc(r.Refresh)
}
