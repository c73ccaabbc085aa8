// Package usbid lists the vendor and product IDs of the supported USB
// serial chips and boards.
package usbid

const (
	VendorFTDI  = 0x0403
	FTDIFT232R  = 0x6001
	FTDIFT2232H = 0x6010
	FTDIFT4232H = 0x6011
	FTDIFT232H  = 0x6014
	FTDIFT231X  = 0x6015

	VendorAtmel  = 0x03EB
	AtmelLUFACDC = 0x2044

	VendorArduino          = 0x2341
	ArduinoUno             = 0x0001
	ArduinoMega2560        = 0x0010
	ArduinoSerialAdapter   = 0x003B
	ArduinoMegaADK         = 0x003F
	ArduinoMega2560R3      = 0x0042
	ArduinoUnoR3           = 0x0043
	ArduinoMegaADKR3       = 0x0044
	ArduinoSerialAdapterR3 = 0x0044
	ArduinoLeonardo        = 0x8036
	ArduinoMicro           = 0x8037

	VendorVanOoijen      = 0x16C0
	VanOoijenTeensyduino = 0x0483

	VendorLeafLabs = 0x1EAF
	LeafLabsMaple  = 0x0004

	VendorElatec        = 0x09D8
	ElatecTWN3CDC       = 0x0320
	ElatecTWN4MifareNFC = 0x0406
	ElatecTWN4CDC       = 0x0420

	VendorSiLabs = 0x10C4
	SiLabsCP2102 = 0xEA60
	SiLabsCP2105 = 0xEA70
	SiLabsCP2108 = 0xEA71
	SiLabsCP2110 = 0xEA80

	VendorProlific   = 0x067B
	ProlificPL2303   = 0x2303
	ProlificPL2303GC = 0x23A3
	ProlificPL2303GB = 0x23B3
	ProlificPL2303GT = 0x23CD
	ProlificPL2303GL = 0x23E3
	ProlificPL2303GE = 0x23E3
	ProlificPL2303GS = 0x23F3

	VendorQinHeng = 0x1A86
	QinHengHL340  = 0x7523

	VendorSTM     = 0x0483
	STMSTLink     = 0x374B
	STMVirtualCOM = 0x5740
)
