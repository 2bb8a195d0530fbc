// Package transfer moves large objects between local sources and an
// S3 compatible object store as concurrent multipart transfers.
//
// A Manager owns a bounded worker pool shared by every transfer it starts.
// Each transfer splits its object into parts, runs the parts on the pool
// under its own concurrency limit and ends exactly once: uploads complete
// or abort the multipart upload, downloads merge their part artifacts into
// the destination in part order or delete them.
//
// Key features:
//   - Uploads from files, seekable readers and streams of unknown size
//   - Ranged downloads into temporary part artifacts with an ordered merge
//   - Cooperative cancellation: requests already issued are never interrupted
//   - Pause and resume across processes with a serializable resume token
//   - Progress events delivered to synchronous or asynchronous listeners
//   - Directory transfers with include and exclude patterns
//
// Example usage:
//
//	objects, err := s3store.New(ctx, s3store.WithRegion("eu-west-1"))
//	if err != nil {
//	    return err
//	}
//	mgr, err := transfer.New(objects, transfer.WithPoolSize(16))
//	if err != nil {
//	    return err
//	}
//	defer mgr.Close(ctx)
//
//	t, err := mgr.UploadFile(ctx, "my-bucket", "backups/db.tar", "/var/backups/db.tar",
//	    transfer.WithPartSize(64*1024*1024))
//	if err != nil {
//	    return err
//	}
//	result, err := t.Wait(ctx)
package transfer
