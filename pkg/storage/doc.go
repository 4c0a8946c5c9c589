// Package storage manages where downloaded files land.
//
// Files are named after the last path segment of their URL. On this API that
// segment is a content hash, so names are stable across runs and an
// interrupted file is found again by the next run and resumed.
//
// Within one run a destination is handed out once; a second attachment that
// resolves to the same path is refused and the caller records it as skipped.
// The Manager works on an afero.Fs so tests run against an in-memory
// filesystem.
//
//	m, err := storage.NewManager(afero.NewOsFs(), "downloads/creator")
//	dest, ok := m.Claim(attachmentURL, attachmentName)
//	if !ok {
//	    // duplicate destination
//	}
package storage
