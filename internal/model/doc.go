// Package model provides the domain types shared by every tillsync package.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import model; model imports nothing internal.
//
// Key design constraints:
//   - NO float types for money - prices and totals use Money (fixed-point)
//   - Members and products are cache records, replaced wholesale on refresh
//   - Bookings are written by this device only and never deleted
//   - All JSON tags use snake_case and match the central authority's wire format
package model
