package engine

// Page health scoring is integrated directly into PageHandle (adaptive_pool.go).
//
// Scoring rules:
//   - Success: errScore -= 0.5 (min 0)
//   - Failure: errScore += 1.0
//
// Retirement triggers (any one, thresholds from AdaptivePoolConfig):
//   - errScore >= MaxErrScore (default 3.0)
//   - useCount >= MaxUses (default 50)
//   - age >= MaxAge (default 50 minutes)
//
// AdaptivePool.Put(handle, success) applies scoring and retires unhealthy
// pages automatically. See PageHandle.recordUse and AdaptivePool.shouldRetire
// in adaptive_pool.go.
