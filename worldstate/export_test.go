package worldstate

import "context"

// CompactNow runs one compaction sweep. Test hook for the external test
// package; the production path runs the same sweep from the ticker loop.
func (s *Service) CompactNow(ctx context.Context) { s.compactOnce(ctx) }
