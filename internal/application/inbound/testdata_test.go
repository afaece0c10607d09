package inbound_test

const (
	keyCTe      = "35241033000167000101570010000007771000007775"
	keyNFe      = "35241033000167000101550010000099991000099990"
	keyExisting = "35241011222333000181570010000008881000008886"
	keyOther    = "35241044333222000155570010000005551000005550"
)

func cteProc(key string) []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8"?>
<cteProc xmlns="http://www.portalfiscal.inf.br/cte" versao="4.00">
<CTe><infCte Id="CTe` + key + `" versao="4.00">
<ide><cUF>35</cUF><CFOP>5353</CFOP><mod>57</mod><serie>1</serie><nCT>777</nCT><dhEmi>2024-10-15T10:00:00-03:00</dhEmi></ide>
<emit><CNPJ>33000167000101</CNPJ><IE>123456789</IE><xNome>TRANSPORTADORA PARCEIRA SA</xNome>
<enderEmit><xMun>Campinas</xMun><UF>SP</UF></enderEmit></emit>
<vPrest><vTPrest>850.00</vTPrest><vRec>850.00</vRec></vPrest>
</infCte></CTe>
<protCTe versao="4.00"><infProt><chCTe>` + key + `</chCTe><cStat>100</cStat></infProt></protCTe>
</cteProc>`)
}

func nfeProc(key string) []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8"?>
<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00">
<NFe><infNFe Id="NFe` + key + `" versao="4.00">
<ide><mod>55</mod><serie>1</serie><nNF>9999</nNF><dhEmi>2024-10-14T09:00:00-03:00</dhEmi></ide>
<emit><CNPJ>33000167000101</CNPJ><xNome>TRANSPORTADORA PARCEIRA SA</xNome><xFant>PARCEIRA</xFant>
<enderEmit><xMun>Campinas</xMun><UF>SP</UF></enderEmit><IE>123456789</IE></emit>
<det nItem="1"><prod><cProd>P-001</cProd><xProd>PASTILHA DE FREIO</xProd><NCM>87083010</NCM><CFOP>5102</CFOP>
<uCom>UN</uCom><qCom>10.0000</qCom><vUnCom>25.50</vUnCom><vProd>255.00</vProd></prod>
<imposto><ICMS><ICMS00><orig>0</orig><CST>00</CST></ICMS00></ICMS></imposto></det>
<det nItem="2"><prod><cProd>P-002</cProd><xProd>DISCO DE FREIO</xProd><NCM>87083090</NCM><CFOP>5102</CFOP>
<uCom>UN</uCom><qCom>2.0000</qCom><vUnCom>120.00</vUnCom><vProd>240.00</vProd></prod>
<imposto><ICMS><ICMSSN102><orig>0</orig><CSOSN>102</CSOSN></ICMSSN102></ICMS></imposto></det>
<total><ICMSTot><vNF>495.00</vNF></ICMSTot></total>
</infNFe></NFe></nfeProc>`)
}

func resEvento(key string) []byte {
	return []byte(`<resEvento xmlns="http://www.portalfiscal.inf.br/nfe" versao="1.01"><chNFe>` + key + `</chNFe><tpEvento>110111</tpEvento></resEvento>`)
}

var malformed = []byte(`<cteProc><CTe><infCte Id="CTe`)
