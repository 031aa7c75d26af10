// Package campaigns implements bulk campaign ingestion, owner management
// and administrative review.
//
// Import is all-or-nothing at the file level: the whole upload is decoded
// into one Campaign dataset, or nothing is stored and the staged file is
// released. On success the staged file is kept and its reference recorded
// on the campaign, to be removed when the campaign is deleted.
//
// Owners move a campaign through processing, completed and failed. Only
// review sets approved or rejected.
package campaigns
