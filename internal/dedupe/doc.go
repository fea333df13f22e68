// Package dedupe drops repeated deliveries of the same platform event.
package dedupe
