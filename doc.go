/*
Package httpcore provides the request-ingestion core of an embeddable
HTTP/1.x server.

It is deliberately narrow: an incremental HTTP/1.1 request parser
(RequestParser) coupled to a backpressure-aware streaming body pipe
(BodyConduit), plus the case-insensitive header multimap (HeaderStore)
both share. It does not accept sockets, generate responses, route
requests, or transform bodies — those concerns live in sibling
packages (see transport and bodycodec) that are built on top of this
one.

The parser is fed arbitrary byte slices via Offer and is agnostic to
how those slices were sliced off the wire; it tolerates a token being
split across any number of Offer calls. Headers are delivered exactly
once via the HeadersReadyFunc passed to NewRequestParser. Body bytes,
whether framed by Content-Length or chunked transfer coding, are
copied into owned buffers and handed off to a BodyConduit, which the
handler drains either by blocking Read calls or by installing a push
Listener.
*/
package httpcore
