// Package bidding wires a bidding client session: the bid record store
// client, the push channel, the lot router, one view model per open lot, the
// lot poller and confirmation sequencers for new offers.
package bidding
