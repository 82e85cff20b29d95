// Package unfollow detects followers lost between two checks.
//
// Each check stores the complete follower list as a JSON snapshot:
//
//	{"ts": 1718000000.5, "followers": {"101": "alice", "102": "bob"}}
//
// and reports the ids present in the previous snapshot but missing now.
package unfollow
