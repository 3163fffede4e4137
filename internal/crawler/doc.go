// Package crawler discovers Electrum servers by walking the peer-list graph.
//
// # Architecture
//
// The Spider owns one crawl. A single coordinating goroutine holds the
// frontier and the visited-host set; every query runs in its own worker
// goroutine that acquires the admission gate, asks the server for its peers
// and reports back over a channel. The visited set therefore never needs a
// lock, and a host is queried at most once per crawl whatever port it is
// referenced with.
//
// # Traversal rules
//
//   - The seed sits at depth 0; peers it lists are at depth 1, and so on.
//     Nothing deeper than the maximum depth is enqueued.
//   - Only peers advertising a TLS port are crawled onward. Plaintext-only
//     peers are recorded but not queried.
//   - A failed or empty peer-list response ends that branch quietly.
//
// # Usage
//
//	spider := crawler.NewSpider(client, crawler.WithMaxDepth(2))
//	peers, err := spider.Crawl(ctx, "electrum3.bluewallet.io", 50002)
package crawler
