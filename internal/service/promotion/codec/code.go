// internal/service/promotion/codec/code.go
// 兑换码的可逆编解码。
//
// 明文 80 bit 布局：[4b 密钥编号][12b 校验和][64b 混淆载荷]，
// 载荷 = couponId<<32 | serial，先与按 couponId&15 选出的密钥异或。
// 整体按 5 bit 一组映射到乱序的 base32 字符表，恒定 16 个字符。
// 校验和覆盖混淆后的载荷，解码端先验后解，任何不一致都按非法码处理。
package codec

import "errors"

// ErrInvalid 表示兑换码格式非法或校验失败，解码端 fail closed。
var ErrInvalid = errors.New("codec: malformed exchange code")

// 乱序字符表，去掉了易混淆的 0/1/O/I
const alphabet = "6CSB7H8DAKXZF3N95RTMVUQG2YE4JWPL"

// 混淆密钥组，couponId & 15 选择使用哪一把。
// 改动任何一把都会使已发出的对应兑换码全部失效。
var secrets = [16]uint64{
	0x45f3c1a97be2086d, 0x9d24b8e6015fca73, 0x6e81f05a3c9d72b4, 0x2ba94ce781f6d035,
	0xd7608e24a95b3f1c, 0x31c5a9f7d04e86b2, 0x8f4e27d1b63a90c5, 0x5a92c6083ed7b41f,
	0xe3b7d40f961c28a5, 0x7c15f8a2d4e9063b, 0xa40963cb2785fed1, 0x18de72b5f0c4a396,
	0xcb36a1e85d29f407, 0x50f9841dc7b3e26a, 0xb2c7e5309a46d18f, 0x94a0d6f12e8b75c3,
}

var charIndex = buildCharIndex()

func buildCharIndex() [256]int8 {
	var idx [256]int8
	for i := range idx {
		idx[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		idx[alphabet[i]] = int8(i)
	}
	return idx
}

// Generate 把 (serial, couponId) 编码为兑换码。
// serial 和 couponId 都必须落在 32 bit 以内。
func Generate(serial, couponID int64) (string, error) {
	if serial <= 0 || serial > 0xFFFFFFFF {
		return "", ErrInvalid
	}
	if couponID <= 0 || couponID > 0xFFFFFFFF {
		return "", ErrInvalid
	}

	keyIdx := uint8(couponID & 15)
	payload := uint64(couponID)<<32 | uint64(uint32(serial))
	masked := payload ^ secrets[keyIdx]
	check := checksum(masked, keyIdx)

	var buf [10]byte
	buf[0] = keyIdx<<4 | byte(check>>8)
	buf[1] = byte(check)
	for i := 0; i < 8; i++ {
		buf[2+i] = byte(masked >> (56 - 8*i))
	}

	// 80 bit -> 16 个 5 bit 字符
	out := make([]byte, 16)
	for i := 0; i < 16; i++ {
		out[i] = alphabet[group5(buf[:], i)]
	}
	return string(out), nil
}

// Parse 解码兑换码，返回序列号与目标优惠券 id。
func Parse(code string) (serial, couponID int64, err error) {
	if len(code) != 16 {
		return 0, 0, ErrInvalid
	}

	var buf [10]byte
	for i := 0; i < 16; i++ {
		v := charIndex[code[i]]
		if v < 0 {
			return 0, 0, ErrInvalid
		}
		put5(buf[:], i, byte(v))
	}

	keyIdx := buf[0] >> 4
	check := uint16(buf[0]&0x0F)<<8 | uint16(buf[1])
	var masked uint64
	for i := 0; i < 8; i++ {
		masked = masked<<8 | uint64(buf[2+i])
	}

	if checksum(masked, keyIdx) != check {
		return 0, 0, ErrInvalid
	}

	payload := masked ^ secrets[keyIdx]
	serial = int64(payload & 0xFFFFFFFF)
	couponID = int64(payload >> 32)

	// 密钥编号必须与解出的券 id 自洽，否则视为篡改
	if serial <= 0 || couponID <= 0 || uint8(couponID&15) != keyIdx {
		return 0, 0, ErrInvalid
	}
	return serial, couponID, nil
}

// checksum 对混淆载荷逐字节做带权累加，折叠到 12 bit。
func checksum(masked uint64, keyIdx uint8) uint16 {
	weights := [8]uint64{3, 7, 11, 19, 23, 31, 43, 59}
	sum := uint64(keyIdx) * 131
	for i := 0; i < 8; i++ {
		b := (masked >> (56 - 8*i)) & 0xFF
		sum += b * weights[i]
	}
	return uint16(sum & 0x0FFF)
}

// group5 取 buf 中第 n 组 5 bit。
func group5(buf []byte, n int) byte {
	bit := n * 5
	idx := bit / 8
	off := bit % 8
	v := uint16(buf[idx]) << 8
	if idx+1 < len(buf) {
		v |= uint16(buf[idx+1])
	}
	return byte(v>>(11-off)) & 0x1F
}

// put5 把 5 bit 值写入 buf 的第 n 组。
func put5(buf []byte, n int, v byte) {
	bit := n * 5
	idx := bit / 8
	off := bit % 8
	wide := uint16(v&0x1F) << (11 - off)
	buf[idx] |= byte(wide >> 8)
	if idx+1 < len(buf) {
		buf[idx+1] |= byte(wide)
	}
}
