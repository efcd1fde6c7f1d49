/*
Package gddns keeps dynamic DNS records pointed at the host's public address.

An [Updater] decides, per hostname, whether the update endpoint needs to be called at all.
It consults a [ResponseCache] holding the last [Outcome] reported for the hostname,
refuses to repeat a request that failed with a [FatalError],
waits out the configured backoff after a [RetryableError],
and skips the network entirely when the cached address already matches.

The cache lives in a directory with one file per hostname so that it survives restarts
and can be cleared by hand or by another instance of the program.
[ResponseCache.Watch] notices such external changes and [ResponseCache.CheckDiskChanges]
drops the in-memory copy before the next batch.

Update endpoints are reached through a [Client]: [DynDNS2Client] speaks the dyndns2 protocol
and [CloudflareClient] manages the records through the Cloudflare API.
The public address comes from a [Resolver].
*/
package gddns
