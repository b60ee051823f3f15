// Package backup exports volumes to a blob store and restores them.
//
// A backup blob is laid out as
//
//	header  | magic "BURROWBK" | version u8 | codec u8 | reserved u16 |
//	body    | volume image compressed with the codec                   |
//	trailer | raw size u64 | CRC32C of raw image u32 | magic "BEND"   |
//
// All integers are little endian. The trailer is written last, so a blob
// cut short by a failed upload never validates. Import reads the header and
// trailer first and restores only when the checksum of the decompressed
// image matches.
//
// Publish and Latest maintain a LATEST pointer blob naming the most recent
// backup. With s3.CatalogStore the pointer update is a conditional write.
package backup
