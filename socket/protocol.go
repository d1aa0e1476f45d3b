package socket

import (
	"fmt"
	"strconv"

	"go.dedis.ch/kyber/v4/suites"
)

// ProtocolVersion is compared during the handshake.
const ProtocolVersion int32 = 100

// Tags of the handshake messages.
const (
	EndianTag     = 1014
	VersionTag    = 1015
	HashTag       = 1016
	IDTypeSizeTag = 1017
)

const (
	frameHeaderSize = 8
	defaultMaxFrame = 1<<31 - 8
)

var suite = suites.MustFind("Ed25519")

// protocolDescription enumerates everything both ends must agree on.
var protocolDescription = fmt.Sprintf(
	"procomm/socket version=%d frame=[tag:int32 le][length:int32 le][payload] split=short-frame-terminated handshake=%d,%d,%d,%d",
	ProtocolVersion, EndianTag, VersionTag, HashTag, IDTypeSizeTag)

// ProtocolHash is the digest of the protocol description exchanged during
// the handshake.
func ProtocolHash() []byte {
	h := suite.Hash()
	h.Write([]byte(protocolDescription))
	return h.Sum(nil)
}

func wideIDs() bool {
	return strconv.IntSize == 64
}
