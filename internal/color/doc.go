// Package color provides terminal theming for sumctl's console output.
//
// Log severities are rendered with a fixed semantic palette:
//   - Success: completed steps (scaled, ready, tunnel up)
//   - Warning: degraded but recovered (port conflict, stop fault)
//   - Error: failed steps
//   - Info: progress lines
//
// # Environment Variables
//
// Respected environment variables:
//   - NO_COLOR: Disable all color output
//   - SUMCTL_THEME: Force "dark" or "light" theme
package color
