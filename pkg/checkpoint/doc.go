// Package checkpoint lets a download run be resumed at post granularity.
//
// A checkpoint lists the posts of one address whose files all finished
// (downloaded, already complete, or skipped). A resumed run leaves those posts
// out of its work queue; everything else is fetched again and partially
// written files continue through range requests.
//
// Checkpoints live in the per-user data directory:
//   - Linux: ~/.local/share/postgrab/checkpoints/
//   - macOS: ~/Library/Application Support/postgrab/checkpoints/
//   - Windows: %APPDATA%/postgrab/checkpoints/
//
// Files are written atomically and carry a format version.
package checkpoint
