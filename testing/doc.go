// Package testing provides test doubles for the retrier packages.
//
// # Mocks
//
// The mocks subpackage provides testify-based mock implementations of the
// collaborator interfaces the executor depends on:
//   - retry.Transport (MockTransport)
//   - auth.Refresher (MockRefresher)
//   - observe.Observer (RecordingObserver)
//
// # Fixtures
//
// The fixtures subpackage provides a scripted transport that replays a fixed
// sequence of statuses, bodies or errors, for scenario style tests.
//
// # Usage
//
//	import (
//		"github.com/gaborage/go-retrier/testing/mocks"
//		"github.com/gaborage/go-retrier/testing/fixtures"
//	)
package testing
