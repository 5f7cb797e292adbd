package rdata

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"net"
)

var (
	ErrShortRdata = errors.New("rdata: buffer shorter than declared RDLENGTH")
	ErrBadAddress = errors.New("rdata: malformed address literal")
)

func putUint16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func putUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func getUint16(buf []byte) (uint16, []byte, error) {
	if len(buf) < 2 {
		return 0, nil, ErrShortRdata
	}
	return binary.BigEndian.Uint16(buf), buf[2:], nil
}

func getUint32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, ErrShortRdata
	}
	return binary.BigEndian.Uint32(buf), buf[4:], nil
}

func putIPv4(buf []byte, ip net.IP) []byte {
	v4 := ip.To4()
	if v4 == nil {
		v4 = make(net.IP, 4)
	}
	return append(buf, v4...)
}

func getIPv4(buf []byte) (net.IP, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, ErrShortRdata
	}
	ip := make(net.IP, 4)
	copy(ip, buf[:4])
	return ip, buf[4:], nil
}

func putIPv6(buf []byte, ip net.IP) []byte {
	v6 := ip.To16()
	if v6 == nil {
		v6 = make(net.IP, 16)
	}
	return append(buf, v6...)
}

func getIPv6(buf []byte) (net.IP, []byte, error) {
	if len(buf) < 16 {
		return nil, nil, ErrShortRdata
	}
	ip := make(net.IP, 16)
	copy(ip, buf[:16])
	return ip, buf[16:], nil
}

func b64(data []byte) string { return base64.StdEncoding.EncodeToString(data) }
