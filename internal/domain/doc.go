// Package domain models EPA Ireland bathing water data.
//
// # Data Source
//
// Records come from the EPA open-data API at https://data.epa.ie/bw/api/v1/.
// Three paged collections are used: Locations, Measurements/in-season and
// Measurements/out-season. Every collection answers
//
//	GET <collection>?page=<n>&per_page=<m>
//
// with a body of the form {"count": <total>, "list": [...]}.
//
// # Identifiers
//
// A beach is identified by beach_id, e.g. "IESWBWC090_0000_0200". The feed
// usually encodes it as a string; numeric encodings are accepted and kept in
// their textual form so that lookups compare like with like.
//
// # Dates
//
// result_date is emitted in a fixed sortable layout ("2024-08-12T00:00:00"),
// so plain string comparison orders samples chronologically. A missing date
// sorts before every real one. See [Newer].
//
// # Names
//
// beach_name is not unique. When a name occurs more than once in a run every
// holder of that name is qualified with its county, "Name (County)". Two
// same-named beaches in the same county still collide; the later one wins.
// See [BuildDirectory].
package domain
