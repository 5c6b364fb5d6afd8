// Package competition implements the coordinator of a time-boxed competition.
//
// Until the deadline the coordinator accepts encrypted submissions from users
// whose tokens the participant registry vouches for. After the deadline it
// releases the test dataset and all submissions, and accepts a winner, only
// from a caller attested to be the designated evaluation program.
package competition
