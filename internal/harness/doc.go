// Package harness runs conformance scenarios against the enhancement
// pipeline.
//
// A scenario describes a feed, the service-level addVoice configuration
// and a sequence of rounds. Each round re-runs a composition over a fresh
// copy of the feed, the way repeated requests for the same feed arrive in
// production, while the breadcrumb store and the in-process synthesis
// service persist across rounds. This makes the caching behaviour
// observable: the first round submits, later rounds poll, and the round
// after completion attaches audio.
//
// # Scenario format
//
//	name: voice_three_passes
//	description: audio appears once the task completes
//	steps: 1
//	voice:
//	  bucket: media
//	  table: breadcrumbs
//	feed:
//	  items:
//	    - id: "1"
//	      title: Hello
//	      text: hello world
//	rounds:
//	  - composition: addVoice
//	  - composition: addVoice
//	    force_status: failed
//	    reason: voice unavailable
//	assertions:
//	  - type: submissions
//	    count: 1
//	  - type: attachment_count
//	    round: 1
//	    item: "1"
//	    count: 0
//
// # Determinism
//
// Task creation times come from a testutil.DeterministicClock. Task ids are
// random, so traces record attachment metadata without the URL. Golden
// snapshots are canonical JSON and compare byte for byte.
package harness
