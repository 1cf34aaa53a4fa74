package usftp

// Wire opcodes, per draft-ietf-secsh-filexfer-02 and the OpenSSH
// extensions this client recognizes.
const (
	fxpInit          = 1
	fxpVersion       = 2
	fxpOpen          = 3
	fxpClose         = 4
	fxpRead          = 5
	fxpWrite         = 6
	fxpLstat         = 7
	fxpFstat         = 8
	fxpSetstat       = 9
	fxpFsetstat      = 10
	fxpOpendir       = 11
	fxpReaddir       = 12
	fxpRemove        = 13
	fxpMkdir         = 14
	fxpRmdir         = 15
	fxpRealpath      = 16
	fxpStat          = 17
	fxpRename        = 18
	fxpReadlink      = 19
	fxpSymlink       = 20
	fxpStatus        = 101
	fxpHandle        = 102
	fxpData          = 103
	fxpName          = 104
	fxpAttrs         = 105
	fxpExtended      = 200
	fxpExtendedReply = 201

	// fxpStatVersion0 is SSH_FXP_STAT's opcode value in protocol version 0,
	// which predates the LSTAT/STAT split.
	fxpStatVersion0 = 17
)

// SSH_FX_* status codes carried by SSH_FXP_STATUS replies.
const (
	sshFxOk               = 0
	sshFxEOF              = 1
	sshFxNoSuchFile       = 2
	sshFxPermissionDenied = 3
	sshFxFailure          = 4
	sshFxBadMessage       = 5
	sshFxNoConnection     = 6
	sshFxConnectionLost   = 7
	sshFxOpUnsupported    = 8

	// statusNoReply is not on the wire: it marks "no status was ever
	// successfully parsed", per spec's reserved code 255.
	statusNoReply = 255
)

// SSH_FXF_* open flags.
const (
	sshFxfRead   = 0x00000001
	sshFxfWrite  = 0x00000002
	sshFxfAppend = 0x00000004
	sshFxfCreat  = 0x00000008
	sshFxfTrunc  = 0x00000010
	sshFxfExcl   = 0x00000020
)

// Exported aliases of the SSH_FXF_* open flags, for callers of Open.
const (
	OpenRead   = sshFxfRead
	OpenWrite  = sshFxfWrite
	OpenAppend = sshFxfAppend
	OpenCreat  = sshFxfCreat
	OpenTrunc  = sshFxfTrunc
	OpenExcl   = sshFxfExcl
)

// SSH_FILEXFER_ATTR_* flags gating which Attrib fields are present on the wire.
const (
	attrSize        = 0x00000001
	attrUIDGID      = 0x00000002
	attrPermissions = 0x00000004
	attrACModTime   = 0x00000008
	attrExtended    = 0x80000000
)

// recognized server extensions, tracked as a bitmask on Conn.
type extensionSet uint32

const (
	extPosixRename extensionSet = 1 << iota
	extStatVfs
	extFStatVfs
)

// sftpMaxMsgLength is the maximum length of a single framed message, matching
// the convention used by OpenSSH's sftp-server.
const sftpMaxMsgLength = 256 * 1024

// minReadSize is the floor transferBuflen may shrink to after a short read.
const minReadSize = 512

// legacyTransferBuflen is the cap applied to transferBuflen when the
// negotiated protocol version is 0: some legacy servers reject larger
// packets.
const legacyTransferBuflen = 20480
