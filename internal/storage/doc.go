// Package storage hosts episode audio and feed documents.
//
// A Destination stores audio files and returns a durable direct-access URI.
// A FeedHost reads and replaces one show's feed document. Backends cover a
// local directory served by a web server, Amazon S3, Google Drive, and a
// GitHub Gist (feed documents only). Open builds both for a show from its
// configuration.
package storage
